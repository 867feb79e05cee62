package ports

import (
	"github.com/gin-gonic/gin"
)

type SourceHTTPHandler interface {
	ListSources(c *gin.Context)
	GetSource(c *gin.Context)
	GetInstanceSources(c *gin.Context)
}

type PlayerHTTPHandler interface {
	ListPlayers(c *gin.Context)
	GetPlayer(c *gin.Context)
	ConnectPlayer(c *gin.Context)
	DeletePlayer(c *gin.Context)
}

type FrameStreamHandler interface {
	HandleFrames(c *gin.Context)
}
