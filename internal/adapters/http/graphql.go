package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/egm96/internal/core/domain"
)

var errPointOutOfRange = errors.New("lat must be within [-90, 90] and lon within [-180, 360]")

// buildSchema creates the GraphQL schema wired to the geoid service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	offsetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoidOffset",
		Fields: graphql.Fields{
			"location":     &graphql.Field{Type: geoPointType},
			"undulation_m": &graphql.Field{Type: graphql.Float},
			"degraded":     &graphql.Field{Type: graphql.Boolean},
		},
	})

	conversionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HeightConversion",
		Fields: graphql.Fields{
			"location":     &graphql.Field{Type: geoPointType},
			"height_m":     &graphql.Field{Type: graphql.Float},
			"from":         &graphql.Field{Type: graphql.String},
			"to":           &graphql.Field{Type: graphql.String},
			"undulation_m": &graphql.Field{Type: graphql.Float},
			"result_m":     &graphql.Field{Type: graphql.Float},
			"degraded":     &graphql.Field{Type: graphql.Boolean},
		},
	})

	gridType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GridInfo",
		Fields: graphql.Fields{
			"loaded":       &graphql.Field{Type: graphql.Boolean},
			"source":       &graphql.Field{Type: graphql.String},
			"rows":         &graphql.Field{Type: graphql.Int},
			"cols":         &graphql.Field{Type: graphql.Int},
			"interval_deg": &graphql.Field{Type: graphql.Float},
			"min_cm":       &graphql.Field{Type: graphql.Int},
			"max_cm":       &graphql.Field{Type: graphql.Int},
			"fingerprint":  &graphql.Field{Type: graphql.String},
			"loaded_at":    &graphql.Field{Type: graphql.DateTime},
		},
	})

	pointArgs := graphql.FieldConfigArgument{
		"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	}

	argPoint := func(p graphql.ResolveParams) (domain.GeoPoint, error) {
		pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
		if !pt.Valid() {
			return pt, errPointOutOfRange
		}
		return pt, nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"geoidOffset": &graphql.Field{
				Type:        offsetType,
				Description: "Geoid undulation at a point",
				Args:        pointArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := argPoint(p)
					if err != nil {
						return nil, err
					}
					return deps.Geoid.Offset(pt.Lat, pt.Lon), nil
				},
			},
			"convertHeight": &graphql.Field{
				Type:        conversionType,
				Description: "Convert a height between the ellipsoidal and orthometric datums",
				Args: graphql.FieldConfigArgument{
					"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"h":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"from": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.DatumEllipsoidal)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := argPoint(p)
					if err != nil {
						return nil, err
					}
					h := p.Args["h"].(float64)
					from := domain.Datum(p.Args["from"].(string))
					return deps.Geoid.ConvertHeight(pt.Lat, pt.Lon, h, from)
				},
			},
			"grid": &graphql.Field{
				Type:        gridType,
				Description: "The grid currently serving queries",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Geoid.Info(), nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"reloadGrid": &graphql.Field{
				Type:        gridType,
				Description: "Reload the grid on this replica",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Geoid.Load(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
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
