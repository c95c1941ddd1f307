package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured front-end origins
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	})
}

// RequireConfig blocks every request with a persistent configuration error
// when the server started without a usable configuration
func RequireConfig(configErr error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if configErr != nil {
			respondError(c, http.StatusServiceUnavailable, "CONFIGURATION_ERROR", configErr.Error())
			return
		}
		c.Next()
	}
}
