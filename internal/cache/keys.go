package cache

const (
	DefaultPrefix   = "transitlive:"
	KeyRouteDetails = "routes:details"
)
