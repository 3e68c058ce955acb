package utils

import (
	"encoding/json"
	"net"

	"realty-server/models"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"
)

// Audit records an explicit inquiry status change. Best effort: a failed
// audit insert is not surfaced to the caller.
func Audit(db *gorm.DB, ctx iris.Context, action, resourceType string, resourceID uint, before interface{}, after interface{}) {
	var beforeStr, afterStr string
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			beforeStr = string(b)
		}
	}
	if after != nil {
		if a, err := json.Marshal(after); err == nil {
			afterStr = string(a)
		}
	}
	var actorID uint
	var ip string
	if ctx != nil {
		if tok := jsonWT.Get(ctx); tok != nil {
			if at, ok := tok.(*AccessToken); ok {
				actorID = at.ID
			}
		}
		ip = clientIP(ctx)
	}
	entry := models.AuditLog{ActorUserID: actorID, Action: action, ResourceType: resourceType, ResourceID: resourceID, BeforeJSON: beforeStr, AfterJSON: afterStr, IPAddress: ip}
	db.Create(&entry)
}

func clientIP(ctx iris.Context) string {
	if ip := ctx.GetHeader("X-Forwarded-For"); ip != "" {
		return ip
	}
	ip, _, _ := net.SplitHostPort(ctx.RemoteAddr())
	return ip
}
