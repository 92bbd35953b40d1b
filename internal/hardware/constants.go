package hardware

const (
	// Consumer label on every requested GPIO line
	Consumer = "robot-service"

	// EVIOCGKEY(len) for a 128-byte key state buffer
	eviocgkey   = 0x80804518
	keyStateLen = 128

	// Output names
	OutputStatusLED = "status_led"
	OutputCalibLED  = "calib_led"
	OutputBuzzer    = "buzzer"
	OutputDirLeft   = "motor_left_dir"
	OutputDirRight  = "motor_right_dir"
)
