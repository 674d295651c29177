package uploads

import "errors"

var (
	ErrNoMetadata       = errors.New("no upload metadata available")
	ErrImageRequired    = errors.New("missing image selection")
	ErrImageUnavailable = errors.New("selected image is no longer available")
	ErrDefectRequired   = errors.New("select a defect before assigning an image")
	ErrImageNotFound    = errors.New("image not found")
	ErrInvalidUpload    = errors.New("invalid upload")
)
