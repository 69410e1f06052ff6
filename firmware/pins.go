package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 10 // one line every 10ms (100 Hz)

	// QMC5883L registers
	QMC_ADDRESS      = 0x0D
	QMC_REG_DATA     = 0x00 // X LSB, X MSB, Y LSB, Y MSB, Z LSB, Z MSB
	QMC_REG_STATUS   = 0x06
	QMC_REG_CONTROL1 = 0x09
	QMC_REG_CONTROL2 = 0x0A
	QMC_REG_PERIOD   = 0x0B

	QMC_STATUS_DRDY = 0x01
	QMC_STATUS_OVL  = 0x02

	// continuous mode, 100 Hz, 2 G range, 512 oversampling
	QMC_CONTROL1   = 0x01 | 0x08
	QMC_SOFT_RESET = 0x80

	// Failure escalation
	SOFT_RESET_AFTER_ERRORS = 3  // read errors in a row before asking for a soft reset
	HARD_RESET_AFTER_ERRORS = 50 // read errors in a row before giving up

	// Sensor pins
	PIN_SDA = machine.SDA_PIN
	PIN_SCL = machine.SCL_PIN

	// Serial configuration
	// Line format "unix_micros,x,y,state\n"
	// Example: "1234567890123456,-32768,-32768,4\n" = 34 bytes max per line
	// 100 lines/sec * 34 bytes/line = 3,400 bytes/sec
	// UART 8N1: 10 bits/byte = 34,000 baud minimum
	// 115200 provides ~3.4x headroom
	UART_BAUD_RATE = 115200
)
