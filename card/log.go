package card

import (
	"io"

	"github.com/sirupsen/logrus"
)

// discardLog backs the optional Log fields when the caller supplies none.
var discardLog logrus.FieldLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()
