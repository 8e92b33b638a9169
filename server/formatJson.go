package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
)

// ListResponse is the JSON dataset list
type ListResponse struct {
	Datasets []DatasetInfo `json:"datasets"`
}

func JsonFormatter(data []DatasetInfo, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(ListResponse{
		Datasets: data,
	})
}

func NDJsonFormatter(data []DatasetInfo, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, d := range data {
		// Encode terminates every row with a newline
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	return nil
}

// HTMLFormatter renders a plain index page with links to every response.
func HTMLFormatter(data []DatasetInfo, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, "Index of datasets:<br/><br/>\n"); err != nil {
		return err
	}
	for _, d := range data {
		name := html.EscapeString(d.Name)
		raw := ""
		if d.Raw != "" {
			raw = fmt.Sprintf(`[<a href="%s">raw</a>]`, html.EscapeString(d.Raw))
		}
		_, err := fmt.Fprintf(w, "   %s %s ([<a href=\"%s\">das</a>][<a href=\"%s\">dds</a>][<a href=\"%s\">dods</a>])<br />\n",
			name, raw, html.EscapeString(d.DAS), html.EscapeString(d.DDS), html.EscapeString(d.DODS))
		if err != nil {
			return err
		}
	}
	return nil
}
