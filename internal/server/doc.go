// Package server は、フォトブースのHTTP APIを提供します。
//
// このパッケージは、撮影セッションを外部から操作するための
// ビュー兼エクスポート層です。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - カメラの起動・停止とMJPEGプレビューの配信
//   - 撮影セッションの開始と状態のWebSocket配信
//   - テンプレートの選択と合成画像のダウンロード
//
// 仕様:
//   - ルーティングはgin、WebSocketはgorilla/websocketを使用
//   - シャットダウン時はHTTPを止めてからセッションを破棄し、カメラを必ず解放する
package server
