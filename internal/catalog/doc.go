// Package catalog resolves (model, scenario) pairs to the ensemble member and
// grid code that identify their files.
//
// The catalog is an external CSV manifest. It is loaded once with [Load] or
// [Parse] and handed to [NewResolver]; there is no package-level state.
//
// # Layouts
//
// The NCCS file listing, as published alongside NEX-GDDP-CMIP6:
//
//	 fileURL
//	https://.../GDDP-CMIP6/ACCESS-CM2/historical/r1i1p1f1/tasmax/tasmax_day_ACCESS-CM2_historical_r1i1p1f1_gn_1950.nc
//
// Or a flat table:
//
//	model,scenario,variable,ensemble,grid
//	ACCESS-CM2,historical,tasmax,r1i1p1f1,gn
//
// # Lookup
//
// Only rows for the reference variable (tasmax by default) are considered.
// A pair without such a row yields a [*LookupError] matching [ErrNotFound].
package catalog
