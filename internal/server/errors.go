package server

import (
	"net/http"

	"github.com/Clement3205902/Clement/internal/apperr"
	"github.com/Clement3205902/Clement/internal/auth"
	"github.com/gin-gonic/gin"
)

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func statusForFailure(code auth.FailureCode) int {
	switch code {
	case auth.FailureInvalidCredentials:
		return http.StatusUnauthorized
	case auth.FailureAccountNotFound:
		return http.StatusNotFound
	case auth.FailureProviderCancelled:
		return http.StatusBadRequest
	case auth.FailureServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.AbortWithStatusJSON(statusForKind(kind), gin.H{"error": string(kind)})
}

func writeAuthError(c *gin.Context, err error) {
	code := auth.FailureCodeOf(err)
	c.AbortWithStatusJSON(statusForFailure(code), gin.H{"error": string(code)})
}

func writeDisabled(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": string(apperr.KindServiceUnavailable)})
}
