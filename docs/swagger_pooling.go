package docs

// @title           Ride Pooling API
// @version         1.0
// @description     Groups ride requests with nearby pickups into shared pools under seat, luggage, detour and expiry limits. Pool updates are pushed to passengers over WebSocket.

// @contact.name   API Support

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
