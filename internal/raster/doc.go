// Package raster owns the pixel-level data model shared by every stage.
//
// Responsibilities: grids, bands with validity masks, boolean masks,
// circular kernels, morphology, focal filters, the directional distance
// sweep used for shadow projection, resampling between ground sample
// distances, terrain slope, connected components and footprint
// rasterisation.
// Key types: Grid, Band, Mask, Kernel.
//
// Every operation returns a new value; inputs are never modified. Spatial
// filters ignore neighbours outside the grid, so tiled callers must supply a
// halo of at least the kernel radius.
package raster
