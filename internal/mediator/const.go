package mediator

import "time"

// how long subscribers get to take the end of stream event
const eosTimeout = time.Second
