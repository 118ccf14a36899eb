package exchange

import (
	"github.com/evdnx/gogateway/common"
	"github.com/evdnx/golog"
)

func defaultLogger() *golog.Logger {
	return common.DefaultLogger()
}
