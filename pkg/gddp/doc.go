// Package gddp describes download jobs for daily downscaled CMIP6 climate
// projections (NEX-GDDP-CMIP6 and compatible THREDDS catalogs).
//
// A [Job] names one file: one model, scenario, variable and calendar year,
// subset to a bounding box. Jobs are produced by [Enumerate] from a [Plan]
// and a [Resolver] that supplies the ensemble member and grid code for each
// (model, scenario) pair.
//
// # Storage Layout
//
// Each job owns exactly one object in a gocloud.dev/blob bucket:
//
//	{model}/{scenario}/{variable}/{variable}_day_{model}_{scenario}_{ensemble}_{grid}_{year}.{ext}
//
// The key is a pure function of the job's identity, which makes it both the
// idempotency key across runs and the reason concurrent jobs never touch the
// same object. [Complete] treats zero-byte objects as missing.
//
// # Remote Resource
//
// [Job.RequestURL] builds an NCSS subset request:
//
//	{base}/{model}/{scenario}/{ensemble}/{variable}/{file}.nc?var=...&north=...&south=...
//	    &east=...&west=...&horizStride=1&time_start={year}-01-01T12:00:00Z
//	    &time_end={year}-12-31T12:00:00Z&accept=netcdf3&addLatLon=true
package gddp
