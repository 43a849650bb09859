// Package geo adapts the OpenCage client to the pipeline's geocoding
// contract: place names are normalized with city/country context and
// every failure maps to a nil result, never an error.
package geo

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/model"
	"github.com/centinela-labs/centinela/pkg/opencage"
)

// Geocoder resolves a free-text place name to coordinates. A nil return
// means the place could not be resolved; callers treat that as a valid
// terminal outcome.
type Geocoder interface {
	Geocode(ctx context.Context, place string) *model.Coordinates
}

// Adapter wraps an opencage.Client with place-name normalization.
type Adapter struct {
	client  opencage.Client
	city    string
	country string
}

// NewAdapter creates a Geocoder scoped to the given city and country.
func NewAdapter(client opencage.Client, city, country string) *Adapter {
	return &Adapter{client: client, city: city, country: country}
}

// Geocode implements Geocoder.
func (a *Adapter) Geocode(ctx context.Context, place string) *model.Coordinates {
	place = strings.TrimSpace(place)
	if place == "" || strings.EqualFold(place, "no especificado") {
		return nil
	}

	query := a.contextualize(place)

	result, err := a.client.Geocode(ctx, query)
	if err != nil {
		zap.L().Error("geo: geocode failed",
			zap.String("place", place),
			zap.Error(err),
		)
		return nil
	}
	if !result.Matched {
		zap.L().Warn("geo: no geocoding results", zap.String("place", place))
		return nil
	}

	zap.L().Info("geo: geocoded place",
		zap.String("place", place),
		zap.Float64("lat", result.Latitude),
		zap.Float64("lng", result.Longitude),
	)
	return &model.Coordinates{Lat: result.Latitude, Lng: result.Longitude}
}

// contextualize appends city/country context unless the place already
// names the city.
func (a *Adapter) contextualize(place string) string {
	if strings.Contains(place, a.city) {
		return place + ", " + a.country
	}
	return place + ", " + a.city + ", " + a.country
}
