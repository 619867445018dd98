package messaging

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	typWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/validation"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

type Controller struct {
	Manager *pkgWhatsApp.Manager
}

// parse decodes the body into req and checks the shared target fields.
func parse(c *fiber.Ctx, req interface{}, target func() typWhatsApp.RequestTarget) (typWhatsApp.RequestTarget, error) {
	if err := c.BodyParser(req); err != nil {
		return typWhatsApp.RequestTarget{}, errBadBody
	}
	t := target()
	t.Instance = strings.TrimSpace(t.Instance)
	if err := validation.ValidateInstanceName(t.Instance); err != nil {
		return t, err
	}
	if err := validation.ValidateRecipient(t.Recipient()); err != nil {
		return t, err
	}
	return t, nil
}

var errBadBody = errors.New("failed to parse body request")

func sent(c *fiber.Ctx, res pkgWhatsApp.SendResult, err error, kind string, t typWhatsApp.RequestTarget) error {
	logger := log.Print(c).WithFields(logrus.Fields{
		"instance": t.Instance,
		"kind":     kind,
	})
	if err != nil {
		logger.WithError(err).Warn("send failed")
		return typWhatsApp.ResponseError(c, err, "Failed to send "+kind)
	}
	return router.ResponseSuccessWithData(c, "Success send message", res)
}

// SendText
// @Summary     Send Text Message
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendText true "Text message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     403 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/message/text [post]
func (ctl *Controller) SendText(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendText
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendText(c.UserContext(), t.Instance, t.Recipient(), req.Text, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindText, t)
}

// SendButtons
// @Summary     Send Quick Reply Buttons
// @Description Up to 3 quick_reply buttons. Footer defaults to NexusWA.
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendButtons true "Buttons message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/buttons [post]
func (ctl *Controller) SendButtons(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendButtons
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendButtons(c.UserContext(), t.Instance, t.Recipient(), pkgWhatsApp.ButtonsMessage{
		Title:   req.Title,
		Text:    req.Message,
		Footer:  req.Footer,
		Buttons: req.Buttons,
	}, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindButtons, t)
}

// SendList
// @Summary     Send List Message
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendList true "List message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/list [post]
func (ctl *Controller) SendList(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendList
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendList(c.UserContext(), t.Instance, t.Recipient(), pkgWhatsApp.ListMessage{
		Title:      req.Title,
		Text:       req.Message,
		Footer:     req.Footer,
		ButtonText: req.ButtonText,
		Sections:   req.Sections,
	}, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindList, t)
}

// SendURLButton
// @Summary     Send URL Button
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendURLButton true "URL button message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/url-button [post]
func (ctl *Controller) SendURLButton(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendURLButton
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendURLButton(c.UserContext(), t.Instance, t.Recipient(), pkgWhatsApp.URLButtonMessage{
		Title:      req.Title,
		Text:       req.Message,
		Footer:     req.Footer,
		ButtonText: req.ButtonText,
		URL:        req.URL,
	}, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindURLButton, t)
}

// SendCopyButton
// @Summary     Send Copy Code Button
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendCopyButton true "Copy button message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/copy-button [post]
func (ctl *Controller) SendCopyButton(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendCopyButton
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendCopyButton(c.UserContext(), t.Instance, t.Recipient(), pkgWhatsApp.CopyButtonMessage{
		Title:      req.Title,
		Text:       req.Message,
		Footer:     req.Footer,
		ButtonText: req.ButtonText,
		Code:       req.CopyCode,
	}, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindCopyButton, t)
}

// SendInteractive
// @Summary     Send Interactive Message
// @Description Accepts header/body/footer/action.buttons; without buttons the text is sent as plain text
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendInteractive true "Interactive message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/interactive [post]
func (ctl *Controller) SendInteractive(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendInteractive
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendInteractive(c.UserContext(), t.Instance, t.Recipient(), req.Interactive, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindInteractive, t)
}

// SendImage
// @Summary     Send Image
// @Description JSON with a base64 or data URL "image", or multipart with a "file" part
// @Tags        Message
// @Accept      json,mpfd
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendImage true "Image message"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/image [post]
func (ctl *Controller) SendImage(c *fiber.Ctx) error {
	if router.IsMultipartForm(c) {
		return ctl.sendImageUpload(c)
	}

	var req typWhatsApp.RequestSendImage
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendImage(c.UserContext(), t.Instance, t.Recipient(), req.Image, req.Caption, req.ViewOnce, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindImage, t)
}

func convertFileToBytes(file multipart.File) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	if _, err := io.Copy(buffer, file); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (ctl *Controller) sendImageUpload(c *fiber.Ctx) error {
	t := typWhatsApp.RequestTarget{
		Instance: strings.TrimSpace(c.FormValue("instance")),
		Number:   c.FormValue("number"),
		To:       c.FormValue("to"),
	}
	t.Delay, _ = strconv.Atoi(c.FormValue("delay"))
	if err := validation.ValidateInstanceName(t.Instance); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateRecipient(t.Recipient()); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return router.ResponseBadRequest(c, "file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}
	defer file.Close()

	data, err := convertFileToBytes(file)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	viewOnce := c.FormValue("view_once") == "true" || c.FormValue("viewOnce") == "true"
	res, err := ctl.Manager.SendImageData(c.UserContext(), t.Instance, t.Recipient(), data,
		fileHeader.Header.Get(fiber.HeaderContentType), c.FormValue("caption"), viewOnce, t.Options())
	return sent(c, res, err, pkgWhatsApp.KindImage, t)
}

// SendReaction
// @Summary     React To Message
// @Description One emoji; an empty emoji removes the reaction
// @Tags        Message
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body typWhatsApp.RequestSendReaction true "Reaction"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/message/reaction [post]
func (ctl *Controller) SendReaction(c *fiber.Ctx) error {
	var req typWhatsApp.RequestSendReaction
	t, err := parse(c, &req, func() typWhatsApp.RequestTarget { return req.RequestTarget })
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	res, err := ctl.Manager.SendReaction(c.UserContext(), t.Instance, t.Recipient(), req.MessageID, req.FromMe, req.Emoji)
	return sent(c, res, err, pkgWhatsApp.KindReaction, t)
}
