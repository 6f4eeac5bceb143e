package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/seoulbike/internal/core/domain"
)

// jsonField declares a field served by the default resolver, which matches
// it against the domain struct's json tags.
func jsonField(t graphql.Output) *graphql.Field {
	return &graphql.Field{Type: t}
}

// buildSchema creates the GraphQL schema over the latest snapshot and the
// trip archive.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": jsonField(graphql.Float),
			"lon": jsonField(graphql.Float),
		},
	})

	stationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Station",
		Fields: graphql.Fields{
			"station_id":    jsonField(graphql.String),
			"station_no":    jsonField(graphql.String),
			"station_title": jsonField(graphql.String),
			"location":      jsonField(geoPointType),
			"bikes_total":   jsonField(graphql.Int),
			"bikes_general": jsonField(graphql.Int),
			"bikes_sprout":  jsonField(graphql.Int),
			"bikes_repair":  jsonField(graphql.Int),
		},
	})

	favoriteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Favorite",
		Fields: graphql.Fields{
			"station_id":    jsonField(graphql.String),
			"station_name":  jsonField(graphql.String),
			"station_no":    jsonField(graphql.String),
			"bikes_general": jsonField(graphql.Int),
			"bikes_sprout":  jsonField(graphql.Int),
			"bikes_repair":  jsonField(graphql.Int),
			"bikes_total":   jsonField(graphql.Int),
			"location":      jsonField(geoPointType),
		},
	})

	centerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Center",
		Fields: graphql.Fields{
			"point":  jsonField(geoPointType),
			"source": jsonField(graphql.String),
			"status": jsonField(graphql.String),
		},
	})

	nearbyStationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearbyStation",
		Fields: graphql.Fields{
			"station_id":   jsonField(graphql.String),
			"station_no":   jsonField(graphql.String),
			"station_name": jsonField(graphql.String),
			"bikes":        jsonField(graphql.Int),
			"distance_m":   jsonField(graphql.Float),
		},
	})

	nearbyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Nearby",
		Fields: graphql.Fields{
			"center":            jsonField(centerType),
			"radius_m":          jsonField(graphql.Int),
			"min_bikes":         jsonField(graphql.Int),
			"max_results":       jsonField(graphql.Int),
			"stations":          jsonField(graphql.NewList(nearbyStationType)),
			"total_bikes":       jsonField(graphql.Int),
			"recommended_bikes": jsonField(graphql.Int),
		},
	})

	accountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Account",
		Fields: graphql.Fields{
			"ticket_expiry": jsonField(graphql.String),
			"voucher_end":   jsonField(graphql.String),
			"registered_at": jsonField(graphql.String),
			"last_login_at": jsonField(graphql.String),
			"source":        jsonField(graphql.String),
		},
	})

	tripType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Trip",
		Fields: graphql.Fields{
			"key":             jsonField(graphql.String),
			"period":          jsonField(graphql.String),
			"history_id":      jsonField(graphql.String),
			"bike":            jsonField(graphql.String),
			"rent_datetime":   jsonField(graphql.String),
			"rent_station":    jsonField(graphql.String),
			"return_datetime": jsonField(graphql.String),
			"return_station":  jsonField(graphql.String),
			"distance_km":     jsonField(graphql.Float),
			"seen_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if t, ok := p.Source.(domain.TripRecord); ok {
						return t.SeenAt.Format(time.RFC3339), nil
					}
					return nil, nil
				},
			},
		},
	})

	snapshotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Snapshot",
		Fields: graphql.Fields{
			"mode":              jsonField(graphql.String),
			"validation_status": jsonField(graphql.String),
			"error":             jsonField(graphql.String),
			"updated_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*domain.Snapshot).UpdatedAt.Format(time.RFC3339), nil
				},
			},
			"renting": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(*domain.Snapshot).RentStatus.Renting(), nil
				},
			},
			"account":          jsonField(accountType),
			"favorites":        jsonField(graphql.NewList(favoriteType)),
			"stations":         jsonField(graphql.NewList(stationType)),
			"nearby":           jsonField(nearbyType),
			"total_rows":       jsonField(graphql.Int),
			"nonzero_stations": jsonField(graphql.Int),
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"snapshot": &graphql.Field{
				Type:        snapshotType,
				Description: "Latest published snapshot",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.snapshot(p.Context)
				},
			},
			"station": &graphql.Field{
				Type:        stationType,
				Description: "One monitored station by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					snap, err := deps.snapshot(p.Context)
					if err != nil {
						return nil, err
					}
					if st, ok := snap.Station(p.Args["id"].(string)); ok {
						return st, nil
					}
					return nil, nil
				},
			},
			"trips": &graphql.Field{
				Type:        graphql.NewList(tripType),
				Description: "Archived trips, newest first",
				Args: graphql.FieldConfigArgument{
					"bike":   &graphql.ArgumentConfig{Type: graphql.String},
					"period": &graphql.ArgumentConfig{Type: graphql.String},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Trips == nil {
						return nil, nil
					}
					filter := domain.TripFilter{
						Limit:  p.Args["limit"].(int),
						Offset: p.Args["offset"].(int),
					}
					filter.Bike, _ = p.Args["bike"].(string)
					filter.Period, _ = p.Args["period"].(string)
					trips, _, err := deps.Trips.List(p.Context, filter)
					return trips, err
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
