//go:build nockdebug

package bridge

import (
	"github.com/rs/zerolog/log"
)

const debugEnabled = true

func debugLog(o origin, msg string) {
	log.Debug().Str("origin", o.String()).Msg(msg)
}
