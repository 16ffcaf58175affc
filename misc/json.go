package misc

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

func BindJSON(c *gin.Context, v interface{}) error {
	body := c.Request.Body
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

func WriteJSON(c *gin.Context, code int, v interface{}) error {
	c.Writer.Header().Set("Content-Type", gin.MIMEJSON)
	c.Status(code)
	return json.NewEncoder(c.Writer).Encode(v)
}

// Status is the standard response envelope.
type Status struct {
	Status        string `json:"status"`
	Msg           string `json:"msg,omitempty"`
	Code          string `json:"code,omitempty"`
	ID            string `json:"id,omitempty"`
	CurrentStatus string `json:"currentStatus,omitempty"`
}

func StatusOK(id string) *Status {
	return &Status{Status: "success", ID: id}
}

func StatusErr(msg string) *Status {
	return &Status{Status: "error", Msg: msg}
}

// StatusErrCode carries a machine-readable code so API callers can branch
// on the cause without parsing the message.
func StatusErrCode(msg, code string) *Status {
	return &Status{Status: "error", Msg: msg, Code: code}
}
