// Package simplelisting provides a generic resource engine for a listings
// marketplace backend.
//
// Every entity kind (categories, real estate items, property types, leads,
// plans, media, ...) is described by a static Kind configuration and served by
// the same Service implementation. The engine combines:
//
//   - a FilterCompiler turning flat query parameters into a Query
//   - a LinkResolver turning embedded sub-objects into reference ids
//   - a MediaResolver streaming uploads to a BlobStore and deduplicating
//     Media documents by url
//   - a Guard deciding whether a principal may mutate a document
//
// Storage is pluggable through the Store and BlobStore interfaces. Backends
// live in the store/ and storage/ subpackages.
//
// Basic usage:
//
//	store := memorystore.New()
//	blobs := memorystorage.New()
//	media, _ := simplelisting.NewMediaResolver(store, blobs)
//
//	categories, err := simplelisting.New(simplelisting.CategoryKind(),
//	    simplelisting.WithStore(store),
//	    simplelisting.WithMediaResolver(media),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	doc, err := categories.Create(ctx, principal, simplelisting.CreateRequest{
//	    Payload: map[string]any{"name": "Villas", "slug": "villas"},
//	})
package simplelisting
