// Package smssvc delivers short text messages. Only the console
// implementation exists for now; a gateway integration slots in behind the
// same interface.
package smssvc

import (
	"log"
	"sync"

	"github.com/bellbook/bellbook/core"
)

var (
	SentMessages = make([]SentSMS, 0)
	mu           sync.Mutex
)

type SentSMS struct {
	Phone string
	Body  string
}

type consoleService struct {
	disableOutput bool
}

var _ core.SMSService = (*consoleService)(nil)

func NewConsoleService() core.SMSService {
	return &consoleService{}
}

// NewConsoleServiceMock records messages without console output, for tests.
func NewConsoleServiceMock() core.SMSService {
	return &consoleService{disableOutput: true}
}

func (svc consoleService) SendSMS(phone, body string) {
	if !svc.disableOutput {
		log.Printf("SMS to %s: %s", phone, body)
	}
	mu.Lock()
	SentMessages = append(SentMessages, SentSMS{Phone: phone, Body: body})
	mu.Unlock()
}

// LastSMSTo returns the most recent message sent to phone, for tests.
func LastSMSTo(phone string) (SentSMS, bool) {
	mu.Lock()
	defer mu.Unlock()
	for i := len(SentMessages) - 1; i >= 0; i-- {
		if SentMessages[i].Phone == phone {
			return SentMessages[i], true
		}
	}
	return SentSMS{}, false
}
