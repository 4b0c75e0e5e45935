package chain

import (
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// SetLogger replaces the logger used by chains created afterwards.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}
