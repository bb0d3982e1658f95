package gddp_test

import (
	"fmt"

	"github.com/ligustah/gridfetch/pkg/gddp"
)

type staticResolver gddp.Member

func (s staticResolver) Resolve(model, scenario string) (gddp.Member, error) {
	return gddp.Member(s), nil
}

func ExampleEnumerate() {
	jobs, warnings := gddp.Enumerate(staticResolver{Ensemble: "r1i1p1f1", Grid: "gn"}, gddp.Plan{
		Models:    []string{"ACCESS-CM2"},
		Variables: []string{"tasmax"},
		Scenarios: map[string]gddp.YearRange{
			"ssp245": {Start: 2015, End: 2016},
		},
		BBox: gddp.BBox{West: -86.6, East: -86.5, South: 39, North: 39.5},
	})
	if len(warnings) > 0 {
		panic(warnings[0])
	}

	for _, j := range jobs {
		fmt.Println(j.Key())
	}
	// Output:
	// ACCESS-CM2/ssp245/tasmax/tasmax_day_ACCESS-CM2_ssp245_r1i1p1f1_gn_2015.nc
	// ACCESS-CM2/ssp245/tasmax/tasmax_day_ACCESS-CM2_ssp245_r1i1p1f1_gn_2016.nc
}

func ExampleJob_RequestURL() {
	j := gddp.Job{
		Model:    "ACCESS-CM2",
		Scenario: "ssp245",
		Ensemble: "r1i1p1f1",
		Grid:     "gn",
		Variable: "tasmax",
		Year:     2015,
		BBox:     gddp.BBox{West: -86.6, East: -86.5, South: 39, North: 39.5},
	}

	u, _ := j.RequestURL("https://ds.nccs.nasa.gov/thredds/ncss/grid/AMES/NEX/GDDP-CMIP6", gddp.DefaultQuery())
	fmt.Println(u)
	// Output:
	// https://ds.nccs.nasa.gov/thredds/ncss/grid/AMES/NEX/GDDP-CMIP6/ACCESS-CM2/ssp245/r1i1p1f1/tasmax/tasmax_day_ACCESS-CM2_ssp245_r1i1p1f1_gn_2015.nc?accept=netcdf3&addLatLon=true&east=-86.5&horizStride=1&north=39.5&south=39&time_end=2015-12-31T12%3A00%3A00Z&time_start=2015-01-01T12%3A00%3A00Z&var=tasmax&west=-86.6
}
