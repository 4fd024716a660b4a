// Package minio serves point cloud datasets from MinIO or any other
// S3-compatible server through minio-go.
//
//	client, _ := minio.New("localhost:9000", &minio.Options{
//		Creds: credentials.NewStaticV4("access", "secret", ""),
//	})
//	store := minio.NewStore(client, "scans", "campus/")
package minio
