package routes

import (
	"stockscore/controllers"

	"github.com/gin-gonic/gin"
)

func Routes(r *gin.Engine, score controllers.ScoreControllerI, stock controllers.StockControllerI) {

	v1 := r.Group("/api")

	{
		v1.GET("/keepServerRunning", controllers.HealthController.IsRunning)

		v1.GET("/stock/:symbol", stock.GetQuote)
		v1.GET("/stock/dcf/:symbol", stock.GetDCF)
		v1.GET("/stock/news/:company", stock.GetNews)

		v1.GET("/score/:symbol", score.GetScore)
		v1.GET("/score/:symbol/stream", score.StreamScore)
		v1.GET("/score/:symbol/export", score.ExportScore)

		v1.GET("/sectors", score.GetSectors)
	}
}
