package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"chat_relay_service/pkg/logger"
)

// StartPprof 在 127.0.0.1:6060 啟動 pprof, production 不啟動
func StartPprof(enabled, production bool) {
	if !enabled || production {
		logger.Log.Info("pprof is disabled")
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server on 127.0.0.1:6060")
		if err := http.ListenAndServe("127.0.0.1:6060", nil); err != nil {
			logger.Log.Errorf("pprof server failed:", err)
		}
	}()
}
