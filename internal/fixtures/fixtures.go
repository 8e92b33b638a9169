// Package fixtures builds in-memory array files shared by tests.
package fixtures

import (
	"github.com/gigapi/gigapi-dars/accessor"
	"github.com/gigapi/gigapi-dars/schema"
)

const (
	Lat = 2
	Lon = 3
)

// Month is a file covering days [start, start+days) of a daily series.
// Values depend on the global day only, so Month(0, 59) equals Month(0, 31)
// and Month(31, 28) joined along time.
//
//	time(time)            Float64  day number
//	lat(lat), lon(lon)    Float32
//	temp(time, lat, lon)  Float32  day*100 + lat*10 + lon
//	anom(lat, time)       Int16    lat*1000 + day
//	mask(lat, lon)        Byte     lat*Lon + lon
//	station(lat)          String
func Month(start, days int) *accessor.MemFile {
	times := make([]float64, days)
	temp := make([]float32, 0, days*Lat*Lon)
	anom := make([]int16, 0, days*Lat)
	for d := 0; d < days; d++ {
		day := start + d
		times[d] = float64(day)
		for y := 0; y < Lat; y++ {
			for x := 0; x < Lon; x++ {
				temp = append(temp, float32(day*100+y*10+x))
			}
		}
	}
	for y := 0; y < Lat; y++ {
		for d := 0; d < days; d++ {
			anom = append(anom, int16(y*1000+start+d))
		}
	}
	mask := make([]uint8, Lat*Lon)
	for i := range mask {
		mask[i] = uint8(i)
	}

	return &accessor.MemFile{
		Dims: []schema.Dimension{
			{Name: "time", Size: days, Unlimited: true},
			{Name: "lat", Size: Lat},
			{Name: "lon", Size: Lon},
		},
		Vars: []schema.Variable{
			{Name: "time", Dims: []string{"time"}, Type: schema.Float64, Attributes: schema.Attributes{
				schema.TextAttr("units", "days since 2000-01-01"),
			}},
			{Name: "lat", Dims: []string{"lat"}, Type: schema.Float32, Attributes: schema.Attributes{
				schema.TextAttr("units", "degrees_north"),
			}},
			{Name: "lon", Dims: []string{"lon"}, Type: schema.Float32},
			{Name: "temp", Dims: []string{"time", "lat", "lon"}, Type: schema.Float32, Attributes: schema.Attributes{
				schema.TextAttr("long_name", "air \"temperature\""),
				schema.FloatAttr("_FillValue", schema.Float32, -999),
				schema.FloatAttr("valid_range", schema.Float32, -50, 50.5),
			}},
			{Name: "anom", Dims: []string{"lat", "time"}, Type: schema.Int16, Attributes: schema.Attributes{
				schema.IntAttr("scale", schema.Int16, 2),
			}},
			{Name: "mask", Dims: []string{"lat", "lon"}, Type: schema.Byte},
			{Name: "station", Dims: []string{"lat"}, Type: schema.String},
		},
		Attrs: schema.Attributes{
			schema.TextAttr("title", "daily test series"),
			schema.IntAttr("version", schema.Int32, 3),
		},
		Data: map[string]*schema.Array{
			"time":    must(schema.FromValues(schema.Float64, []int{days}, times)),
			"lat":     must(schema.FromValues(schema.Float32, []int{Lat}, []float32{60, 61})),
			"lon":     must(schema.FromValues(schema.Float32, []int{Lon}, []float32{5, 6, 7})),
			"temp":    must(schema.FromValues(schema.Float32, []int{days, Lat, Lon}, temp)),
			"anom":    must(schema.FromValues(schema.Int16, []int{Lat, days}, anom)),
			"mask":    must(schema.FromValues(schema.Byte, []int{Lat, Lon}, mask)),
			"station": must(schema.FromValues(schema.String, []int{Lat}, []string{"north", "south"})),
		},
	}
}

// Dataset describes f the way the accessor would.
func Dataset(name string, f *accessor.MemFile) *schema.Dataset {
	return must(schema.New(name, f.Dims, f.Vars, f.Attrs))
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
