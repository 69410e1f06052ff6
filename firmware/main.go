//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

// Sample states, shared with the host line protocol.
const (
	stateOk             = 0
	stateSaturated      = 1
	stateReadError      = 2
	stateNeedsSoftReset = 3
	stateNeedsHardReset = 4
)

var (
	i2c  = machine.I2C0
	uart = machine.UART0

	// Sensor state
	errorCount int // consecutive failed reads
	lastX      int16
	lastY      int16

	// Timing
	lastRead time.Time

	// I/O buffers
	regBuffer  [6]byte
	oneByte    [1]byte
	serialLine [8]byte
	serialPos  int
)

func main() {
	i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       PIN_SDA,
		SCL:       PIN_SCL,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	initSensor()
	lastRead = time.Now()

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			x, y, state := readSensor()
			outputSample(now, x, y, state)
			lastRead = now
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func writeRegister(reg, value byte) error {
	return i2c.WriteRegister(QMC_ADDRESS, reg, []byte{value})
}

func initSensor() error {
	if err := writeRegister(QMC_REG_PERIOD, 0x01); err != nil {
		return err
	}
	return writeRegister(QMC_REG_CONTROL1, QMC_CONTROL1)
}

// softReset restarts the sensor and announces it so the host drops its state.
func softReset() {
	writeRegister(QMC_REG_CONTROL2, QMC_SOFT_RESET)
	time.Sleep(10 * time.Millisecond)
	initSensor()
	errorCount = 0

	print(time.Now().UnixNano() / 1000)
	print(",reset\n")
}

// readSensor returns the latest X/Y reading. On failure the last good reading
// is repeated with an error state.
func readSensor() (int16, int16, int) {
	if err := i2c.ReadRegister(QMC_ADDRESS, QMC_REG_STATUS, oneByte[:]); err != nil {
		return lastX, lastY, readFailed()
	}
	status := oneByte[0]
	if status&QMC_STATUS_DRDY == 0 && status&QMC_STATUS_OVL == 0 {
		// no new conversion yet, repeat the last reading
		return lastX, lastY, stateOk
	}

	if err := i2c.ReadRegister(QMC_ADDRESS, QMC_REG_DATA, regBuffer[:]); err != nil {
		return lastX, lastY, readFailed()
	}
	errorCount = 0

	lastX = int16(uint16(regBuffer[0]) | uint16(regBuffer[1])<<8)
	lastY = int16(uint16(regBuffer[2]) | uint16(regBuffer[3])<<8)

	if status&QMC_STATUS_OVL != 0 {
		return lastX, lastY, stateSaturated
	}
	return lastX, lastY, stateOk
}

func readFailed() int {
	errorCount++
	switch {
	case errorCount >= HARD_RESET_AFTER_ERRORS:
		return stateNeedsHardReset
	case errorCount >= SOFT_RESET_AFTER_ERRORS:
		return stateNeedsSoftReset
	}
	return stateReadError
}

func outputSample(now time.Time, x, y int16, state int) {
	// Output format: "unix_micros,x,y,state\n"
	// Example: "1234567890123,-312,877,0\n"
	print(now.UnixNano() / 1000)
	print(",")
	print(x)
	print(",")
	print(y)
	print(",")
	print(state)
	print("\n")
}

// processSerial handles host commands. "r" requests a soft reset.
func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 && serialLine[0] == 'r' {
				softReset()
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialLine) {
			serialLine[serialPos] = data
			serialPos++
		}
	}
}
