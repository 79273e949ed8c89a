package locations

// SourceTransport tags locations coming from the charging-station directory.
// The schema supports more sources; this system integrates exactly one.
const SourceTransport = "transport"

// Query parameter limits shared by validation and the upstream clients.
const (
	LatMin = -90.0
	LatMax = 90.0
	LngMin = -180.0
	LngMax = 180.0

	RadiusMinKm     = 1.0
	RadiusMaxKm     = 100.0
	RadiusDefaultKm = 10.0

	MaxResultsMin     = 1
	MaxResultsMax     = 100
	MaxResultsDefault = 50
)

// Location is one normalized point of interest.
type Location struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	Address         string   `json:"address"`
	Operator        *string  `json:"operator"`
	ConnectionTypes []string `json:"connectionTypes"`
	PowerKW         *float64 `json:"powerKW"`
	Available       bool     `json:"available"`
	NumberOfPoints  int      `json:"numberOfPoints"`
	Source          string   `json:"source"`
}

// Weather is a snapshot for one point. It has no identity: a refetch always
// replaces it wholesale.
type Weather struct {
	Location    string  `json:"location"`
	Temperature int     `json:"temperature"`
	FeelsLike   int     `json:"feelsLike"`
	Humidity    float64 `json:"humidity"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	WindSpeed   int     `json:"windSpeed"`
	Pressure    float64 `json:"pressure"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapBounds is a transient query value: viewport center plus derived radius.
type MapBounds struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	RadiusKm float64 `json:"radius"`
}

// SourceCounts breaks the result set down per contributing source.
type SourceCounts struct {
	Transport int `json:"transport"`
}

// Meta describes a result set.
type Meta struct {
	Count   int           `json:"count"`
	Radius  float64       `json:"radius"`
	Center  Coordinates   `json:"center"`
	Sources *SourceCounts `json:"sources,omitempty"`
}

// Response is the envelope returned by the locations endpoint and consumed
// by the map client.
type Response struct {
	Data    []Location `json:"data"`
	Meta    Meta       `json:"meta"`
	Weather *Weather   `json:"weather"`
}
