package cable

import (
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// SetLogger replaces the logger used by cable drivers.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}
