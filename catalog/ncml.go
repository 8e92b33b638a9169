package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
)

type ncmlDoc struct {
	XMLName     xml.Name         `xml:"netcdf"`
	Aggregation *ncmlAggregation `xml:"aggregation"`
}

type ncmlAggregation struct {
	Type     string     `xml:"type,attr"`
	DimName  string     `xml:"dimName,attr"`
	Children []ncmlNode `xml:",any"`
}

// ncmlNode is either <netcdf location=".."/> or <scan .../>.
type ncmlNode struct {
	XMLName  xml.Name
	Location string `xml:"location,attr"`
	Suffix   string `xml:"suffix,attr"`
	Ignore   string `xml:"ignore,attr"`
}

// ParseNcML reads a joinExisting aggregation document. Relative locations
// are resolved against dir, the directory holding the document.
func ParseNcML(r io.Reader, name, dir string) (Entry, error) {
	var doc ncmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Entry{}, fmt.Errorf("ncml %s: %w", name, err)
	}
	agg := doc.Aggregation
	if agg == nil {
		return Entry{}, fmt.Errorf("ncml %s: no aggregation element", name)
	}
	if agg.Type != "joinExisting" {
		return Entry{}, fmt.Errorf("ncml %s: aggregation type %q not supported, only joinExisting", name, agg.Type)
	}
	if agg.DimName == "" {
		return Entry{}, fmt.Errorf("ncml %s: aggregation dimension not specified", name)
	}
	out := &Aggregation{Dimension: agg.DimName}
	for _, n := range agg.Children {
		switch n.XMLName.Local {
		case "netcdf":
			if n.Location == "" {
				return Entry{}, fmt.Errorf("ncml %s: member without location", name)
			}
			out.Members = append(out.Members, resolve(dir, n.Location))
		case "scan":
			if n.Location == "" || n.Suffix == "" {
				return Entry{}, fmt.Errorf("ncml %s: scan needs location and suffix", name)
			}
			out.Scan = append(out.Scan, Scan{Location: resolve(dir, n.Location), Suffix: n.Suffix, Ignore: n.Ignore})
		}
	}
	return Entry{Name: name, Aggregation: out}, nil
}
