// Package camera はフォトブースのライブ映像ソースの取得と解放を担う
//
// # 責務
// - カメラの開始・停止（取得したら必ず一度だけ解放する）
// - 最新フレームの保持とサイズの報告
// - V4L2デバイスの検出
//
// # 仕様
// - DeviceAdapter: ffmpeg経由でV4L2デバイスからMJPEGストリームを読み出す
// - MockAdapter: 合成フレームを出すテスト・デモ用の実装
// - 開始は最初のフレームが届いた時点で完了とみなす（サイズ0のまま返さない）
//
// # 前提要件
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//   - v4l-utils: カメラ名の取得に使用
//   - videoグループへの参加: デバイスアクセス権限
package camera
