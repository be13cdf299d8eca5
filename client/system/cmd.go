package system

import (
	"time"
)

// Now is used to stub time.Now in tests
var Now = time.Now
