package providers

import "regexp"

var pageObject = regexp.MustCompile(`/Type\s*/Page([^s]|$)`)

// EstimatePageCount counts page-object markers in raw PDF bytes. It is a
// cheap guard, not an exact count: compressed object streams hide markers.
func EstimatePageCount(data []byte) int {
	return len(pageObject.FindAllIndex(data, -1))
}
