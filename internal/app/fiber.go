package app

import (
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gofiber/fiber/v2"
)

// FiberHandler serves the API from a local fiber server by converting each
// request to the API Gateway shape the Lambda receives.
func (app *App) FiberHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		headers := make(map[string]string)
		for k, v := range c.GetReqHeaders() {
			if len(v) > 0 {
				headers[k] = strings.Join(v, ", ")
			}
		}

		req := events.APIGatewayProxyRequest{
			Path:                  c.Path(),
			HTTPMethod:            c.Method(),
			Headers:               headers,
			QueryStringParameters: c.Queries(),
			Body:                  string(c.Body()),
		}

		resp, err := app.HandleRequest(c.UserContext(), req)
		if err != nil {
			return err
		}

		for k, v := range resp.Headers {
			c.Set(k, v)
		}
		for k, vs := range resp.MultiValueHeaders {
			for _, v := range vs {
				c.Response().Header.Add(k, v)
			}
		}
		return c.Status(resp.StatusCode).SendString(resp.Body)
	}
}
