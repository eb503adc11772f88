package geo

import "errors"

var (
	errTooFewVertices  = errors.New("geo: polygon requires at least 3 vertices")
	errSelfIntersecting = errors.New("geo: polygon edges self-intersect")
)
