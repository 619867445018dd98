package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
)

type Response struct {
	Status  bool        `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func logSuccess(c *fiber.Ctx, code int, message string) {
	statusMessage := http.StatusText(code)

	if statusMessage == message || c.OriginalURL() == BaseURL {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, statusMessage))
	} else {
		log.Print(c).Info(fmt.Sprintf("%d %v", code, message))
	}
}

func logError(c *fiber.Ctx, code int, message string) {
	line := fmt.Sprintf("%d %v", code, message)
	if code >= http.StatusInternalServerError {
		log.Print(c).Error(line)
		return
	}
	log.Print(c).Warn(line)
}

func messageOrStatus(code int, message string) string {
	if strings.TrimSpace(message) == "" {
		return http.StatusText(code)
	}
	return message
}

func respondSuccess(c *fiber.Ctx, code int, message string, data interface{}) error {
	response := Response{
		Status:  true,
		Code:    code,
		Message: messageOrStatus(code, message),
		Data:    data,
	}

	logSuccess(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func respondError(c *fiber.Ctx, code int, message string) error {
	message = messageOrStatus(code, message)
	response := Response{
		Status:  false,
		Code:    code,
		Message: message,
		Error:   message,
	}

	logError(c, response.Code, response.Message)
	return c.Status(response.Code).JSON(response)
}

func ResponseSuccess(c *fiber.Ctx, message string) error {
	return respondSuccess(c, http.StatusOK, message, nil)
}

func ResponseSuccessWithData(c *fiber.Ctx, message string, data interface{}) error {
	return respondSuccess(c, http.StatusOK, message, data)
}

func ResponseSuccessWithHTML(c *fiber.Ctx, html string) error {
	logSuccess(c, http.StatusOK, http.StatusText(http.StatusOK))
	c.Type("html", "utf-8")
	return c.Status(http.StatusOK).SendString(html)
}

func ResponseCreatedWithData(c *fiber.Ctx, message string, data interface{}) error {
	return respondSuccess(c, http.StatusCreated, message, data)
}

func ResponseAcceptedWithData(c *fiber.Ctx, message string, data interface{}) error {
	return respondSuccess(c, http.StatusAccepted, message, data)
}

func ResponseNoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusBadRequest, message)
}

func ResponseUnauthorized(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusUnauthorized, message)
}

func ResponseForbidden(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusForbidden, message)
}

func ResponseNotFound(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusNotFound, message)
}

func ResponseConflict(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusConflict, message)
}

func ResponseTooManyRequests(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusTooManyRequests, message)
}

func ResponseInternalError(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusInternalServerError, message)
}

func ResponseBadGateway(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusBadGateway, message)
}

func ResponseServiceUnavailable(c *fiber.Ctx, message string) error {
	return respondError(c, http.StatusServiceUnavailable, message)
}
