package types

// Filter defines a function to filter running images.
//
// Parameters:
//   - image: Image to evaluate.
//
// Returns:
//   - bool: True if the image passes the filter, false otherwise.
type Filter func(image LocalImageRef) bool
