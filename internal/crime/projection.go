package crime

import (
	"fmt"

	"github.com/im7mortal/UTM"
)

// Projector converts projected planar coordinates (meters) to WGS84 degrees.
type Projector interface {
	ToWGS84(x, y float64) (lat, lon float64, err error)
}

// UTMProjector projects from a UTM zone. The Vancouver open-data export uses
// NAD83 / UTM zone 10N, which is treated as WGS84 (sub-meter datum shift).
type UTMProjector struct {
	Zone     int
	Northern bool
}

// DefaultProjector returns the projector for Vancouver Police Department data.
func DefaultProjector() UTMProjector {
	return UTMProjector{Zone: 10, Northern: true}
}

// ToWGS84 converts an easting/northing pair to latitude and longitude.
func (p UTMProjector) ToWGS84(x, y float64) (float64, float64, error) {
	lat, lon, err := UTM.ToLatLon(x, y, p.Zone, "", p.Northern)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: zone %d: %v", ErrProjection, p.Zone, err)
	}
	return lat, lon, nil
}

// IdentityProjector treats X as longitude and Y as latitude. Used for inputs
// that are already geographic.
type IdentityProjector struct{}

// ToWGS84 returns y, x after range checking.
func (IdentityProjector) ToWGS84(x, y float64) (float64, float64, error) {
	if y < -90 || y > 90 || x < -180 || x > 180 {
		return 0, 0, fmt.Errorf("%w: (%f, %f) out of range", ErrProjection, x, y)
	}
	return y, x, nil
}
