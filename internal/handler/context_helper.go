package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-academic-api/internal/middleware"
	"github.com/noah-isme/univ-academic-api/internal/models"
	appErrors "github.com/noah-isme/univ-academic-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

func isStudent(c *gin.Context) bool {
	claims := claimsFromContext(c)
	return claims != nil && claims.Role == models.RoleStudent
}

// ownStudentID resolves the student a request acts for. Students may only act
// for themselves, staff must name the student.
func ownStudentID(c *gin.Context, requested string) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleStudent {
		if requested != "" && requested != claims.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "students can only act on their own records")
		}
		return claims.UserID, nil
	}
	return requested, nil
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}
