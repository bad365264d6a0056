package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/scentmatch/engine/internal/config"
)

func CORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins: cfg.Security.CORS.AllowedOrigins,
		AllowMethods: cfg.Security.CORS.AllowedMethods,
		AllowHeaders: cfg.Security.CORS.AllowedHeaders,
	}

	// Credentials cannot be combined with a wildcard origin.
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowOrigins = nil
			break
		}
	}
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowCredentials = true
	}

	return cors.New(corsConfig)
}
