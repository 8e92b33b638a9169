package server

import "net/http"

// DatasetInfo is one row of the dataset list.
type DatasetInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	DAS  string `json:"das"`
	DDS  string `json:"dds"`
	DODS string `json:"dods"`
	Raw  string `json:"raw,omitempty"`
}

type formatterFn func(data []DatasetInfo, w http.ResponseWriter) error

var formatters = map[string]formatterFn{
	"json":   JsonFormatter,
	"ndjson": NDJsonFormatter,
	"html":   HTMLFormatter,
}
