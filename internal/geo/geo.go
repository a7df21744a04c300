// Package geo places the simulation plane on the globe for map-based
// viewers. Geometry columns store plane coordinates as-is in WKB; the
// transforms here georeference them against a configured WGS84 origin.
package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/phantomjam/engine/internal/config"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// PlaneOrigin anchors plane coordinate (0,0) at a WGS84 position and
// scales plane units to meters.
type PlaneOrigin struct {
	Lat           float64
	Lon           float64
	MetersPerUnit float64
}

// NewPlaneOrigin builds the plane origin from the geo config section.
// A non-positive scale falls back to one meter per unit.
func NewPlaneOrigin(cfg config.GeoConfig) PlaneOrigin {
	o := PlaneOrigin{
		Lat:           cfg.OriginLat,
		Lon:           cfg.OriginLon,
		MetersPerUnit: cfg.MetersPerUnit,
	}
	if o.MetersPerUnit <= 0 {
		o.MetersPerUnit = 1
	}
	return o
}

// OriginFromString parses a "lat,lon" override into a plane origin, as
// accepted on the command line.
func OriginFromString(coords string, metersPerUnit float64) (PlaneOrigin, error) {
	point, _, err := PointFromString(coords)
	if err != nil {
		return PlaneOrigin{}, err
	}
	c, _ := point.Coordinates()
	return NewPlaneOrigin(config.GeoConfig{
		OriginLat:     c.XY.X,
		OriginLon:     c.XY.Y,
		MetersPerUnit: metersPerUnit,
	}), nil
}

// PointFromString parses a string in the format "x,y" or "x,y,z" into a
// plane point, and returns the point and elevation
func PointFromString(
	coords string,
) (
	point geom.Point,
	elev float64,
	err error,
) {
	// split the string into its components
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 {
		return geom.NewEmptyPoint(geom.DimXYZ), 0, ErrInvalidCoordinates
	}
	// parse the x coordinate
	x, err := strconv.ParseFloat(coordsSplit[0], 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ), 0, ErrInvalidCoordinates
	}
	// parse the y coordinate
	y, err := strconv.ParseFloat(coordsSplit[1], 64)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ), 0, ErrInvalidCoordinates
	}
	// parse the elevation
	if len(coordsSplit) > 2 {
		elev, err = strconv.ParseFloat(coordsSplit[2], 64)
		if err != nil {
			return geom.NewEmptyPoint(geom.DimXYZ), 0, ErrInvalidCoordinates
		}
	}
	// create the point
	point = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    elev,
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
	return point, elev, nil
}

// Point3857 georeferences a plane coordinate as a web mercator point.
// Plane offsets are applied in mercator meters, which holds up at the
// scales a track covers.
func (o PlaneOrigin) Point3857(
	x float64,
	y float64,
) (
	point geom.Point,
	err error,
) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	ox, oy, _ := f(o.Lon, o.Lat, 0)

	px := ox + x*o.MetersPerUnit
	py := oy + y*o.MetersPerUnit
	if !coordsFinite(px, py) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}

	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: px, Y: py},
			Z:  0,
		},
	)
	return point, nil
}

// PointWGS84 georeferences a plane coordinate as a longitude/latitude
// point.
func (o PlaneOrigin) PointWGS84(
	x float64,
	y float64,
) (
	point geom.Point,
	err error,
) {
	epsg := wgs84.EPSG()
	fwd := epsg.Transform(4326, 3857)
	inv := epsg.Transform(3857, 4326)

	ox, oy, _ := fwd(o.Lon, o.Lat, 0)
	lon, lat, _ := inv(ox+x*o.MetersPerUnit, oy+y*o.MetersPerUnit, 0)
	if !coordsFinite(lon, lat) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}

	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: lon, Y: lat},
			Z:  0,
		},
	)
	return point, nil
}

func coordsFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
