// Package client is the threatlens Go SDK for the threatd HTTP API.
//
// # Analyzing a model
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := c.Analyze(ctx, &threatmodel.Request{
//	    ThreatModelID: "checkout",
//	    Methodology:   threatmodel.MethodologySTRIDE,
//	    Components:    components,
//	})
//	fmt.Println(resp.RiskAssessment.RiskLevel)
//
// # Authentication
//
// Analyses are attributed to the token's user when one is attached.
// Pattern changes need an admin token on servers with auth enabled:
//
//	c, _ := client.New(server, client.WithBearerToken(token))
//	err := c.RemovePattern(ctx, "web-xss")
//
// NewFromEnv reads THREATLENS_SERVER and THREATLENS_TOKEN.
//
// # Errors
//
// Non-2xx responses are returned as *APIError. 404s also match ErrNotFound:
//
//	if errors.Is(err, client.ErrNotFound) { ... }
package client
