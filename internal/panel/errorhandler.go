package panel

import "periph.io/x/conn/v3/gpio"

// errorHandler keeps the first error and turns every later call into a
// no-op, so pin sequences read top to bottom.
type errorHandler struct {
	d   *Dev
	err error
}

func (eh *errorHandler) tx(w []byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.c.Tx(w, nil)
}

func (eh *errorHandler) dcOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.dc.Out(l)
}

func (eh *errorHandler) csOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.cs.Out(l)
}

func (eh *errorHandler) rstOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.rst.Out(l)
}

func (eh *errorHandler) flashCSOut(l gpio.Level) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.flashCS.Out(l)
}
