package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
)

const arpansaUVURL = "https://uvdata.arpansa.gov.au/xml/uvvalues.xml"

// ARPANSAProvider reads the current UV index from the ARPANSA station feed.
type ARPANSAProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewARPANSAProvider(client *http.Client) *ARPANSAProvider {
	return &ARPANSAProvider{
		name:    "arpansa",
		baseURL: arpansaUVURL,
		client:  client,
		circuit: newCircuit("arpansa"),
	}
}

func (p *ARPANSAProvider) Name() string {
	return p.name
}

type uvDocument struct {
	Locations []struct {
		ID    string  `xml:"id,attr"`
		Name  string  `xml:"name"`
		Index float64 `xml:"index"`
	} `xml:"location"`
}

// FetchUV returns the UV index of the station whose short name (or id) matches.
func (p *ARPANSAProvider) FetchUV(ctx context.Context, station string) (float64, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, p.baseURL, nil)
	}

	body, err := doRequest(ctx, p.name, p.client, p.circuit, buildRequest)
	if err != nil {
		return 0, err
	}

	var doc uvDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return 0, malformed(p.name, err)
	}

	for _, loc := range doc.Locations {
		if strings.EqualFold(loc.Name, station) || strings.EqualFold(loc.ID, station) {
			return loc.Index, nil
		}
	}
	return 0, malformed(p.name, fmt.Errorf("station %q not found", station))
}
