package main

import "github.com/fpang/annotation-router/internal/objstore"

// newSeededStore holds one routable export and one with an unknown label.
func newSeededStore() *objstore.MemStore {
	s := objstore.NewMemStore()
	s.Put("production/img001.jpg", []byte("jpeg"))
	s.Put("labelstudio/output/randomsampled/1",
		[]byte(`{"task":{"data":{"image":"http://localhost:9000/production/img001.jpg"}},"result":[{"type":"choices","value":{"choices":["Egg"]}}]}`))
	s.Put("labelstudio/output/randomsampled/2",
		[]byte(`{"task":{"data":{"image":"http://localhost:9000/production/img002.jpg"}},"result":[{"type":"choices","value":{"choices":["Pizza"]}}]}`))
	return s
}
