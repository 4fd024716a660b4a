// Package s3 serves point cloud datasets from Amazon S3.
//
// Payload reads are ranged GETs of exactly one slot; uploads go through the
// multipart uploader of feature/s3/manager.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "scans", "campus/")
//	reg := registry.New(store)
package s3
