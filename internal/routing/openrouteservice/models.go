package openrouteservice

// directionsBody is the POST /v2/directions/{profile} request.
type directionsBody struct {
	Coordinates       [][2]float64  `json:"coordinates"`
	AlternativeRoutes *alternatives `json:"alternative_routes,omitempty"`
	Instructions      bool          `json:"instructions"`
	Geometry          bool          `json:"geometry"`
	Units             string        `json:"units"`
	Language          string        `json:"language"`
}

type alternatives struct {
	TargetCount  int     `json:"target_count"`
	ShareFactor  float64 `json:"share_factor,omitempty"`
	WeightFactor float64 `json:"weight_factor,omitempty"`
}

// directionsResult keeps only what candidate generation reads.
type directionsResult struct {
	Routes []resultRoute `json:"routes"`
}

type resultRoute struct {
	Summary struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"summary"`
	Segments []struct {
		Steps []step `json:"steps"`
	} `json:"segments"`
	Geometry string `json:"geometry"`
}

type step struct {
	Distance float64 `json:"distance"`
	Name     string  `json:"name"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Directions error codes that mean no route can be served.
const (
	codeLimitExceeded = 2004
	codeRouteNotFound = 2009
	codePointNotFound = 2010
)
