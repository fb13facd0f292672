package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fintherapy-backend/internal/delivery/http/response"
	"fintherapy-backend/internal/domain"
)

type AuthHandler struct {
	authUC domain.AuthUsecase
}

func NewAuthHandler(protected *gin.RouterGroup, authUC domain.AuthUsecase) {
	handler := &AuthHandler{authUC: authUC}

	protected.GET("/auth/me", handler.Me)
}

// Me godoc
// @Summary      Current user
// @Description  Returns the local user record synchronized from the identity provider
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=domain.User}
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authUC.GetCurrentUser(c.Request.Context(), c.GetString(string(domain.KeyExternalID)))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Current user", user)
}
